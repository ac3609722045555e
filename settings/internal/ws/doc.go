// Package ws serves the settings command protocol over WebSocket.
package ws
