// Command ratemonitor is the single binary behind both CI hooks and the
// detached poll loop they spawn between them. It has no flags beyond
// the subcommand name; every tunable comes from the environment so the
// hooks stay a one-line invocation in any CI config.
package main

import (
	"fmt"
	"os"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "hook":
		if len(args) < 2 {
			fmt.Println("Error: hook subcommand required (pre|post)")
			printUsage()
			os.Exit(1)
		}
		switch args[1] {
		case "pre":
			os.Exit(runHookPre())
		case "post":
			os.Exit(runHookPost())
		default:
			fmt.Printf("Error: unknown hook '%s'\n", args[1])
			printUsage()
			os.Exit(1)
		}
	case "poll":
		os.Exit(runPoll())
	case "version":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Error: unknown command '%s'\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("ratemonitor %s - CI rate-limit monitor\n\n", version)
	fmt.Println("Usage:")
	fmt.Println("  ratemonitor hook pre    Spawn the detached poll loop; run at job start")
	fmt.Println("  ratemonitor hook post   Stop the poll loop and render its final report; run at job end")
	fmt.Println("  ratemonitor poll        Run the poll loop in the foreground (invoked by hook pre, not by users)")
	fmt.Println("  ratemonitor version     Show version information")
	fmt.Println()
	fmt.Println("Configuration is read entirely from the environment:")
	fmt.Println("  RATEWATCH_TOKEN              forge API bearer token (required)")
	fmt.Println("  RATEWATCH_STATE_DIR          temp directory the monitor may write under (required)")
	fmt.Println("  RATEWATCH_BASE_INTERVAL_MS   base poll interval in milliseconds (default 60000)")
	fmt.Println("  RATEWATCH_DIAGNOSTICS        true|1|yes|on to enable diagnostics output (default off)")
	fmt.Println("  RATEWATCH_FORGE_URL          forge API base URL (default https://api.github.com)")
}

func printVersion() {
	fmt.Printf("ratemonitor %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}
