package configuration

// ResolveSecretsWith exposes secret resolution with an injected lookup.
func (c *Config) ResolveSecretsWith(lookup func(string) (string, bool)) error {
	return c.resolveSecrets(lookup)
}
