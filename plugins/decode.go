package plugins

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// decodeConfig unmarshals a consumer's free-form JSON configuration
// (already parsed into a string-keyed map by the registry) into a
// strongly typed reassembler config struct.
func decodeConfig(config map[string]any, out any) error {
	if config == nil {
		return nil
	}
	if err := mapstructure.Decode(config, out); err != nil {
		return fmt.Errorf("plugins: decoding consumer config: %w", err)
	}
	return nil
}
