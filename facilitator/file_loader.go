// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package facilitator

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ConfigFile represents the root structure of a facilitator configuration file
type ConfigFile struct {
	Version      string   `yaml:"version"`
	Facilitators []Config `yaml:"facilitators"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} references
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnvVars substitutes ${VAR} and ${VAR:-default} references with
// environment values. Unset variables without a default expand to empty.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok {
			return value
		}
		return groups[2]
	})
}

// LoadConfigFile reads a YAML facilitator configuration file, expanding
// environment variable references, and returns the enabled configs.
func LoadConfigFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facilitator config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &file); err != nil {
		return nil, fmt.Errorf("failed to parse facilitator config file: %w", err)
	}

	var configs []Config
	for _, config := range file.Facilitators {
		if !config.Enabled {
			continue
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}

	return configs, nil
}

// LoadFromFile registers every enabled facilitator from a YAML config file.
func (r *Registry) LoadFromFile(path string) error {
	configs, err := LoadConfigFile(path)
	if err != nil {
		return err
	}

	for _, config := range configs {
		if err := r.Register(config); err != nil {
			return err
		}
	}
	return nil
}
