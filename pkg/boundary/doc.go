// Package boundary decides which route renders an error.
package boundary
