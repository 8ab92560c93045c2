package config

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// secretParamSuffix marks a variable holding a parameter-store path for the
// secret named by the prefix, e.g.
// SLACK_WEBHOOK_URL_SSM_PARAM=/prod/alarmrelay/slack-webhook-url.
const secretParamSuffix = "_SSM_PARAM"

const secretResolveTimeout = 30 * time.Second

// SecretProvider resolves parameter paths to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns path -> value for every path it resolved.
	// Paths it could not find are either omitted or reported as an error.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

var secretStringType = reflect.TypeOf(SecretString(""))

// secretKeys lists the environment keys of every SecretString in Config.
// Only these may be bound to the parameter store.
func secretKeys() []string {
	var keys []string
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		for i := range t.NumField() {
			f := t.Field(i)
			key := f.Tag.Get("envconfig")
			switch {
			case f.Type == secretStringType && key != "":
				keys = append(keys, key)
			case f.Type.Kind() == reflect.Struct && key == "":
				walk(f.Type)
			}
		}
	}
	walk(reflect.TypeOf(Config{}))
	return keys
}

type secretBinding struct {
	target string
	path   string
}

// resolveSecrets fills unset secret variables from their *_SSM_PARAM
// bindings before envconfig runs. A secret already present in the
// environment wins over its binding. Local environments never resolve.
func resolveSecrets(provider SecretProvider, deps loaderDeps) error {
	if env, _ := deps.lookupEnv("APP_ENV"); env == "" || env == "local" {
		return nil
	}

	var bindings []secretBinding
	for _, key := range secretKeys() {
		if v, ok := deps.lookupEnv(key); ok && v != "" {
			continue
		}
		path, _ := deps.lookupEnv(key + secretParamSuffix)
		if path = strings.TrimSpace(path); path == "" {
			continue
		}
		bindings = append(bindings, secretBinding{target: key, path: path})
	}
	if len(bindings) == 0 {
		return nil
	}

	if provider == nil && deps.newProvider != nil {
		provider = deps.newProvider(deps.lookupEnv)
	}
	if provider == nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("a SecretProvider is required to resolve %s", strings.Join(bindingTargets(bindings), ", ")),
		}
	}

	paths := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !slices.Contains(paths, b.path) {
			paths = append(paths, b.path)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: "failed to fetch secret parameters",
			Err:     err,
		}
	}

	var missing []secretBinding
	for _, b := range bindings {
		value, ok := resolved[b.path]
		if !ok {
			missing = append(missing, b)
			continue
		}
		if err := deps.setEnv(b.target, value); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: fmt.Sprintf("failed to set %s", b.target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secret parameters not found for %s", strings.Join(bindingTargets(missing), ", ")),
		}
	}
	return nil
}

func bindingTargets(bindings []secretBinding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.target
	}
	return out
}
