// Package config loads runtime configuration for the imgdrop CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment: IMGDROP_TOKEN and IMGDROP_ENDPOINT, with a .env file
//     loaded first when present.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "endpoint": "https://assets.example.com",
//	  "folder": "avatars",
//	  "tags": ["profile"],
//	  "max_size": 10485760,
//	  "min_width": 100,
//	  "max_retries": 3,
//	  "base_delay": "1s",
//	  "max_delay": "10s",
//	  "capture_command": ["ffmpeg", "-f", "video4linux2", "-i", "{device}", "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-"]
//	}
//
// The access token is not part of the JSON schema. It comes
// from the environment or from the interactive "token" command.
package config
