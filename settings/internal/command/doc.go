// Package command parses the text commands a settings client sends:
// "get", "set:<key>:<value>" and "batch:<json object>".
package command
