package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var buildSkipVerify bool

// buildCmd runs the image build pipeline for one server.
var buildCmd = &cobra.Command{
	Use:   "build <name>",
	Short: "Build a server's container image",
	Long: `Builds the container image for an npx or uvx server from its generated
Dockerfile, or pulls the referenced image for a docker server. After a
successful build the image is smoke-tested: a throwaway container runs
the real start command and must survive its first seconds. Use
--skip-verify when the server needs credentials to boot.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()
	mgr := application.Manager()

	server, err := resolveServer(ctx, st, args[0])
	if err != nil {
		return err
	}
	if !mgr.IsDockerRunning(ctx) {
		return fmt.Errorf("docker daemon is not reachable at %s", application.Config().Docker.Host)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Building image for %s...", server.Name)
	s.Start()

	err = mgr.BuildServer(ctx, server)
	s.Stop()
	if err != nil {
		fmt.Println(text.FgRed.Sprintf("Build failed: %v", err))
		return fmt.Errorf("build of %s failed", server.Name)
	}
	fmt.Println(text.FgGreen.Sprintf("Built image for %s", server.Name))

	if buildSkipVerify {
		return nil
	}

	// The build updated the stored image tag, work from the fresh row.
	server, err = st.GetServer(ctx, server.ID)
	if err != nil {
		return fmt.Errorf("failed to reload server: %w", err)
	}

	s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Verifying %s...", server.Name)
	s.Start()

	err = mgr.VerifyServer(ctx, server)
	s.Stop()
	if err != nil {
		fmt.Println(text.FgYellow.Sprintf("Verification failed: %v", err))
		fmt.Println("The image is built; fix the start command or environment and verify with another build.")
		return nil
	}

	fmt.Println(text.FgGreen.Sprintf("Server %s verified and ready to mount", server.Name))
	return nil
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildSkipVerify, "skip-verify", false, "Skip the post-build smoke test")
}
