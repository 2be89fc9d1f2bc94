package config

import "runtime"

const (
	defaultInboundDir        = "~/.local/share/pictor/inbound"
	defaultWorkDir           = "~/.local/share/pictor/work"
	defaultDerivativeDir     = "~/.local/share/pictor/derivatives"
	defaultLogDir            = "~/.local/share/pictor/logs"
	defaultMetadataFile      = "bag-info.txt"
	defaultPayloadDir        = "data"
	defaultOriginTag         = "External-Identifier"
	defaultASTimeoutSeconds  = 30
	defaultJP2Binary         = "opj_compress"
	defaultJP2Timeout        = 600
	defaultPDFBinary         = "img2pdf"
	defaultPDFTimeout        = 900
	defaultOCRBinary         = "ocrmypdf"
	defaultOCRTimeout        = 1800
	defaultStorageRegion     = "us-east-1"
	defaultStorageTimeout    = 300
	defaultUploadMaxAttempts = 5
	defaultMaxStageRetries   = 3
	defaultLogFormat         = "text"
	defaultLogLevel          = "info"
	maxDefaultJP2Workers     = 4
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboundDir:    defaultInboundDir,
			WorkDir:       defaultWorkDir,
			DerivativeDir: defaultDerivativeDir,
			LogDir:        defaultLogDir,
		},
		Ingest: Ingest{
			MetadataFile: defaultMetadataFile,
			PayloadDir:   defaultPayloadDir,
			OriginTag:    defaultOriginTag,
		},
		ArchivesSpace: ArchivesSpace{
			TimeoutSeconds: defaultASTimeoutSeconds,
		},
		JP2: JP2{
			Binary:         defaultJP2Binary,
			TimeoutSeconds: defaultJP2Timeout,
			Workers:        defaultJP2Workers(),
		},
		PDF: PDF{
			Binary:            defaultPDFBinary,
			TimeoutSeconds:    defaultPDFTimeout,
			OCRBinary:         defaultOCRBinary,
			OCRTimeoutSeconds: defaultOCRTimeout,
		},
		Storage: Storage{
			Region:         defaultStorageRegion,
			TimeoutSeconds: defaultStorageTimeout,
			MaxAttempts:    defaultUploadMaxAttempts,
		},
		Workflow: Workflow{
			MaxStageRetries: defaultMaxStageRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// defaultJP2Workers caps encode parallelism; JPEG2000 encoding is memory
// hungry, so the default stays well below large core counts.
func defaultJP2Workers() int {
	workers := runtime.GOMAXPROCS(0)
	if workers > maxDefaultJP2Workers {
		workers = maxDefaultJP2Workers
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
