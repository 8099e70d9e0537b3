// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates the cobra command tree into the application's configuration;
// environment variables and the project file are folded in by
// app.LoadSettings.
package cli
