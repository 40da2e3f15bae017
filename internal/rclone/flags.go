package rclone

import "strings"

// ParseFlags splits a free-form flag string such as
// "--transfers 4 --checkers 8 --fast-list" into discrete arguments. Every
// whitespace separated token becomes one argument, so a flag keeps all the
// values that follow it. Values containing spaces are not supported.
func ParseFlags(flags string) []string {
	fields := strings.Fields(flags)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// BuildArgs assembles the rclone command line for req
func BuildArgs(req Request, exclusionList, configFile string) []string {
	args := []string{req.Command, "--progress", "--exclude-from", exclusionList}
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	args = append(args, ParseFlags(req.Flags)...)
	return append(args, req.RemotePath, req.TargetPath)
}
