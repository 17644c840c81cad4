package main

type config struct {
	BaseURL  string `mapstructure:"base_url"`
	Emitter  string `mapstructure:"emitter"`
	Name     string `mapstructure:"name"`
	Command  string `mapstructure:"command"`
	Interval string `mapstructure:"interval"`
}
