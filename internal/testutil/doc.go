// Package testutil contains helper builders and stub agents used across tests
// to reduce boilerplate when constructing tasks, workflows and agents. These
// helpers are intentionally minimal and not intended for production usage.
package testutil
