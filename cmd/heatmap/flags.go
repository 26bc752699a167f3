package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlag lets an explicitly set flag override file and environment values.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if f == nil {
		panic("unknown flag for " + key)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
