package command_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/safe-refill/internal/util/command"
)

func TestNewSubcommandGroup(t *testing.T) {
	sub := &cobra.Command{
		Use: "sub",
		Run: func(_ *cobra.Command, _ []string) {},
	}

	group := command.NewSubcommandGroup("group", sub)
	assert.Equal(t, "group", group.Use)
	require.True(t, group.HasSubCommands())

	found, _, err := group.Find([]string{"sub"})
	require.NoError(t, err)
	assert.Equal(t, sub, found)

	// invoking the group itself prints usage instead of failing
	group.SetArgs([]string{})
	assert.NoError(t, group.Execute())
}
