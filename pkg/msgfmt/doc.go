// Package msgfmt renders log events into chat message text.
//
// A Template is compiled once from an output template such as
//
//	{Timestamp:15:04:05} [{Level:u3}] {Message:lj}{NewLine}{Exception}
//
// and is then safe for concurrent use. Numbers are formatted with the
// template's locale (golang.org/x/text); the zero locale means the host's
// locale as reported by the environment.
//
// Built-in tokens:
//   - Timestamp (format: Go time layout)
//   - Level (format: u3, w3, u, w)
//   - Message (format: l renders strings without quotes, j is accepted)
//   - NewLine, Exception, Properties
//
// Any other name renders the event property with that name.
package msgfmt
