// Package branding centralizes product naming so user-facing surfaces stay
// consistent.
package branding

// AppName is the product name shown to users and announced to MCP clients.
const AppName = "Drivelane"
