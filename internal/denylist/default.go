package denylist

// DefaultPatterns contains the compiled-in command tokens.
// Order matters only for which token Match reports.
var DefaultPatterns = Patterns{
	Commands: []string{
		"whoami",
		"ls",
		"rm",
		"dd",
		"mkfs",
		"fdisk",
		"wget",
		"curl",
		"ssh",
		"scp",
		"iptables",
		"ufw",
		"nc",
		"telnet",
		"python",
		"perl",
		"ruby",
		"php",
		"gcc",
		"make",
		"sudo",
		"su",
		"crontab",
		"chown",
		"chmod",
		"setuid",
		"setgid",
		"rsync",
		"git",
		"mount",
		"umount",
		"passwd",
	},
}
