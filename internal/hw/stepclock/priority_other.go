//go:build !linux || tinygo

package stepclock

func raisePriority() {}
