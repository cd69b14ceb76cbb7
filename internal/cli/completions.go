package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// completeCaptureIDs lists archived capture IDs, newest first, with their
// message count and source as the description.
func completeCaptureIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Archive == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	captures, err := Archive.Recent(0)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, c := range captures {
		if toComplete == "" || strings.HasPrefix(c.ID, toComplete) {
			ids = append(ids, c.ID+"\t"+strconv.Itoa(c.MessageCount)+" messages from "+c.Source)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeModes completes the simulated scroll modes.
func completeModes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"manual\tScroll from the start anchor to the end anchor while sampling",
		"search\tStart on the end anchor and search upward for the start",
	}, cobra.ShellCompDirectiveNoFileComp
}
