// Package ui holds the terminal output of the command line: colored
// print helpers, desktop notifications and the end-of-run summary.
package ui
