package config

import (
	"strings"
	"time"
)

// AppVersion is the version of the service.
var AppVersion = "2.0.0" // Overridden with -ldflags during release builds

// AppName is the name of the service.
const AppName = "Placement"

// LogSubDir is the sub directory for the log files.
var LogSubDir = strings.ToLower(AppName)

// LogExt is the extension for the log files.
var LogExt = ".log"

// Defaults applied before the config file and environment are read.
const (
	DefaultPort            = 4000
	DefaultAssetsDir       = "images"
	DefaultPosterPath      = "images/poster.png"
	DefaultAWSRegion       = "eu-west-1"
	DefaultRenderTimeout   = 60 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
	DefaultMaxConnections  = 256
	DefaultAnonymousRPS    = 5.0
	DefaultRemoteRPS       = 20.0
	DefaultPDFDPI          = 150
	DefaultMaxAnonymousDim = 1200
)

// DefaultVariantWidths are the widths of the resized variants precomputed per scene.
var DefaultVariantWidths = []int{1200}
