// Package config provides the configuration system for fxbridge.
//
// Configuration is resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← FXBRIDGE_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← fxbridge.toml / .yaml / .json
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Files and environment variables are both read into nested maps, merged,
// and then decoded into a typed Config.
//
// # Basic Usage
//
//	cfg, err := config.Load("fxbridge.toml")
//	if err != nil {
//		return err
//	}
//	c := container.New(container.WithEditorConfig(cfg.EditorConfig()))
//	c.Update(ctx, cfg.Params())
//
// # Live Reload
//
// Watcher reloads the file when it is written and hands the new Config to a
// callback:
//
//	w, err := config.NewWatcher("fxbridge.toml", func(cfg *config.Config) {
//		c.Update(ctx, cfg.Params())
//	})
//	defer w.Close()
package config
