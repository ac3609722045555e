// Package connid tags accepted WebSocket connections.
package connid
