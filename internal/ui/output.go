// Package ui provides colored terminal output helpers for the CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

// center pads text on the left so it appears centered within width. Text
// wider than width is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}

// Header prints a boxed section header.
func Header(text string) {
	line := strings.Repeat("=", headerWidth)
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println(line)
	cyan.Println(center(text, headerWidth))
	cyan.Println(line)
}

// Step prints a numbered progress step.
func Step(current, total int, text string) {
	color.New(color.FgBlue, color.Bold).Printf("[%d/%d] ", current, total)
	fmt.Println(text)
}

// Success prints a green success message.
func Success(text string) {
	color.New(color.FgGreen).Printf("✓ %s\n", text)
}

// Info prints a neutral informational message.
func Info(text string) {
	fmt.Printf("  %s\n", text)
}

// Warning prints a yellow warning message.
func Warning(text string) {
	color.New(color.FgYellow).Printf("⚠ %s\n", text)
}

// Error prints a red error message.
func Error(text string) {
	color.New(color.FgRed).Printf("✗ %s\n", text)
}

// BlueText prints text in blue.
func BlueText(text string) {
	color.New(color.FgBlue).Println(text)
}

// YellowText prints text in yellow.
func YellowText(text string) {
	color.New(color.FgYellow).Println(text)
}
