// Package config provides the crawl configuration: defaults, validation,
// the YAML configuration file and XDG directories. It also turns the file's
// contexts, users and scope into the values a crawl target is built from.
package config
