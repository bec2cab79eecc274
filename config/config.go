// Package config loads channel configuration for the can327bridge example
// binary from an ini file, the same format the teacher library's object
// dictionary parser uses, repurposed here for channel settings instead of
// CANopen parameter descriptions.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Channel describes one bridged elm327 link.
type Channel struct {
	Name         string
	SerialPort   string
	BaudRate     int
	BitrateHz    int
	ListenOnly   bool
	ReconnectMin int // seconds
	ReconnectMax int // seconds
}

// Load reads one Channel per non-default section, shaped like:
//
//	[can0]
//	port = /dev/ttyUSB0
//	baud = 38400
//	bitrate = 500000
//	listen_only = false
//	reconnect_min = 1
//	reconnect_max = 30
func Load(path string) ([]Channel, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	var channels []Channel
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		ch := Channel{
			Name:         section.Name(),
			SerialPort:   section.Key("port").String(),
			BaudRate:     section.Key("baud").MustInt(38400),
			BitrateHz:    section.Key("bitrate").MustInt(500000),
			ListenOnly:   section.Key("listen_only").MustBool(false),
			ReconnectMin: section.Key("reconnect_min").MustInt(1),
			ReconnectMax: section.Key("reconnect_max").MustInt(30),
		}
		if ch.SerialPort == "" {
			return nil, fmt.Errorf("config: section %q is missing \"port\"", ch.Name)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
