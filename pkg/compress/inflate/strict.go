//go:build !pngdebug

package inflate

const strictBuild = false
