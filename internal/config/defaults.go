package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			URL:        "http://127.0.0.1:5001/api",
			Listen:     "127.0.0.1:5001",
			GRPCHealth: "127.0.0.1:50061",
			TimeoutMS:  5000,
		},
		Sync: SyncConfig{DebounceMS: 200},
		Poll: PollConfig{
			StatusMS:  2000,
			DevicesMS: 5000,
		},
		UI: UIConfig{
			Notify:          NotifyStdout,
			NoticeTimeoutMS: 5000,
			DesktopAppName:  "yakutan",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			Level:      "info",
		},
	}
}
