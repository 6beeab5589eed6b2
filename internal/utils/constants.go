package utils

const (
	// GlobalConfigDirectoryName is the directory under the user's home that holds global configuration.
	GlobalConfigDirectoryName = ".dirtree"
	// ConfigFileName is the configuration file name looked up globally.
	ConfigFileName = "config.yaml"
	// LocalConfigFileName is the configuration file name looked up in the working directory.
	LocalConfigFileName = ".dirtree.yaml"

	// LoggerInitializationFailedMessageFormat reports a logger construction failure.
	LoggerInitializationFailedMessageFormat = "initialize logger: %w"
	// ApplicationExecutionFailedMessage prefixes fatal command failures.
	ApplicationExecutionFailedMessage = "dirtree failed"
)
