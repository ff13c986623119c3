package util

import "github.com/spf13/viper"

// NASModeOverride returns the explicit nas-mode setting, or nil to auto-detect.
func NASModeOverride() *bool {
	if !viper.IsSet("nas-mode") {
		return nil
	}
	v := viper.GetBool("nas-mode")
	return &v
}
