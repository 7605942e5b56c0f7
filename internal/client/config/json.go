package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/imgdrop/internal/flagx"
	"github.com/dmitrijs2005/imgdrop/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// use timex.Duration so they can be "3s" or integer nanoseconds. Absent
// fields keep the value loaded before.
type JsonConfig struct {
	Endpoint       *string         `json:"endpoint"`
	RequestTimeout *timex.Duration `json:"request_timeout"`

	Folder         *string  `json:"folder"`
	Tags           []string `json:"tags"`
	UploadOnSelect *bool    `json:"upload_on_select"`

	MaxSize      *int64   `json:"max_size"`
	AllowedTypes []string `json:"allowed_types"`
	MinWidth     *int     `json:"min_width"`
	MinHeight    *int     `json:"min_height"`
	MaxWidth     *int     `json:"max_width"`
	MaxHeight    *int     `json:"max_height"`

	MaxRetries       *int            `json:"max_retries"`
	BaseDelay        *timex.Duration `json:"base_delay"`
	Multiplier       *float64        `json:"multiplier"`
	MaxDelay         *timex.Duration `json:"max_delay"`
	TransportRetries *int            `json:"transport_retries"`

	DropDir        *string  `json:"drop_dir"`
	PreviewDir     *string  `json:"preview_dir"`
	CameraDevices  *string  `json:"camera_devices"`
	CaptureCommand []string `json:"capture_command"`

	HistoryPath *string `json:"history_path"`
	LogLevel    *string `json:"log_level"`
}

// parseJson overlays cfg with the JSON file named by -c or -config. It
// panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.Endpoint, jc.Endpoint)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)

	setString(&cfg.Folder, jc.Folder)
	if jc.Tags != nil {
		cfg.Tags = jc.Tags
	}
	if jc.UploadOnSelect != nil {
		cfg.UploadOnSelect = *jc.UploadOnSelect
	}

	if jc.MaxSize != nil {
		cfg.MaxSize = *jc.MaxSize
	}
	if jc.AllowedTypes != nil {
		cfg.AllowedTypes = jc.AllowedTypes
	}
	setInt(&cfg.MinWidth, jc.MinWidth)
	setInt(&cfg.MinHeight, jc.MinHeight)
	setInt(&cfg.MaxWidth, jc.MaxWidth)
	setInt(&cfg.MaxHeight, jc.MaxHeight)

	setInt(&cfg.MaxRetries, jc.MaxRetries)
	setDuration(&cfg.BaseDelay, jc.BaseDelay)
	if jc.Multiplier != nil {
		cfg.Multiplier = *jc.Multiplier
	}
	setDuration(&cfg.MaxDelay, jc.MaxDelay)
	setInt(&cfg.TransportRetries, jc.TransportRetries)

	setString(&cfg.DropDir, jc.DropDir)
	setString(&cfg.PreviewDir, jc.PreviewDir)
	setString(&cfg.CameraDevices, jc.CameraDevices)
	if jc.CaptureCommand != nil {
		cfg.CaptureCommand = jc.CaptureCommand
	}

	setString(&cfg.HistoryPath, jc.HistoryPath)
	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
