// Package sysmem provides the system memory reading used as the admission
// pressure input. Readings are sampled on demand and cached briefly so the
// admission path does not hit the OS on every connect.
package sysmem
