// Package config loads and watches the telemetry mock configuration.
//
// Top-level types:
//   - Config{Telemetry} — the `telemetry:` section; other keys are ignored
//   - TelemetryConfig — listen, frame_interval, wrap_interval, log_level, mqtt
//
// Load(path) starts from the defaults (localhost:8765, 400ms between frames,
// 1s after the finalize frame), overlays the YAML file, then validates. An
// empty path skips the file entirely.
//
// Watch(ctx, path, onChange) uses fsnotify to re-run Load whenever the file
// is written or recreated by an atomic-save editor, and passes the result to
// onChange. Bad reloads are logged and dropped.
package config
