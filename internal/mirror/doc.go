// Package mirror republishes what the mocks send over WebSocket to an MQTT
// broker, so tools that watch the real device's topics can be pointed at a
// mock instead. With no broker configured New returns Nop.
package mirror
