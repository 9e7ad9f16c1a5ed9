//go:build js

package audit

const browserRuntime = true
