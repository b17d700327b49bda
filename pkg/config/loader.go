package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	baseFile    = "base.yaml"
	secretsFile = "secrets.env"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig 按 base.yaml -> <env>.yaml 的顺序合并配置，再替换 ${VAR} 占位符。
// 占位符取值优先级：系统环境变量 > secrets.env；两者都没有时保留原样。
func LoadConfig(env string, configDir string) (map[string]interface{}, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := readYAML(filepath.Join(configDir, baseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", baseFile, err)
	}

	if env != "" && env != "base" {
		overlay, err := readYAML(filepath.Join(configDir, env+".yaml"))
		switch {
		case err == nil:
			merged = mergeMaps(merged, overlay)
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
		}
	}

	secrets, err := readEnvFile(filepath.Join(configDir, secretsFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", secretsFile, err)
	}

	lookup := func(key string) (string, bool) {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
		v, ok := secrets[key]
		return v, ok
	}
	return expand(merged, lookup).(map[string]interface{}), nil
}

// Decode 将合并后的配置解码到结构体
func Decode(merged map[string]interface{}, out interface{}) error {
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to re-encode config: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func readYAML(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

// readEnvFile 解析 KEY=VALUE 行，支持注释、export 前缀和引号
func readEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	env := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		env[strings.TrimSpace(key)] = value
	}
	return env, sc.Err()
}

// mergeMaps 返回 dst 被 src 递归覆盖后的新 map
func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if a, ok := out[k].(map[string]interface{}); ok {
			if b, ok := v.(map[string]interface{}); ok {
				out[k] = mergeMaps(a, b)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// expand 递归替换字符串中的 ${VAR}
func expand(v interface{}, lookup func(string) (string, bool)) interface{} {
	switch val := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(val, func(m string) string {
			if s, ok := lookup(m[2 : len(m)-1]); ok {
				return s
			}
			return m
		})
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = expand(item, lookup)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = expand(item, lookup)
		}
		return out
	default:
		return v
	}
}

// GetConfigEnv 获取配置环境（CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	if env := os.Getenv("CONFIG_ENV"); env != "" {
		return env
	}
	return "local"
}
