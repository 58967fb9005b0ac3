/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package main

import (
	"github.com/josephgoksu/ShiftWing/cmd"
	"github.com/josephgoksu/ShiftWing/internal/logger"
)

func main() {
	defer logger.HandlePanic()
	cmd.Execute()
}
