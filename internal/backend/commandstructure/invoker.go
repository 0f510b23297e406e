package commandstructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CommandInvoker runs a fixed sequence of commands over an image.
type CommandInvoker struct {
	commands []Command
}

func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{
		commands: commands,
	}
}

// Names lists the commands in execution order.
func (i *CommandInvoker) Names() []string {
	names := make([]string, len(i.commands))
	for idx, command := range i.commands {
		names[idx] = command.Name()
	}
	return names
}

// Execute applies all commands in sequence. The context is checked between
// steps so an abandoned upload stops early.
func (i *CommandInvoker) Execute(ctx context.Context, imageData []byte) ([]byte, error) {
	start := time.Now()

	slog.Info("starting image pipeline",
		"command_count", len(i.commands),
		"input_size_bytes", len(imageData))

	if len(i.commands) == 0 {
		slog.Debug("no commands to execute, returning original image")
		return imageData, nil
	}

	currentData := imageData
	for idx, command := range i.commands {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("image pipeline aborted before %s: %w", command.Name(), err)
		}
		commandStart := time.Now()

		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Error("command execution failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		slog.Debug("command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"input_size_bytes", len(currentData),
			"output_size_bytes", len(processedData))

		currentData = processedData
	}

	slog.Info("image pipeline completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(i.commands),
		"final_size_bytes", len(currentData))

	return currentData, nil
}

// ExecuteCommands builds the configured commands from DefaultRegistry and runs them.
func ExecuteCommands(ctx context.Context, imageData []byte, commandConfigs []CommandConfig) ([]byte, error) {
	commands, err := DefaultRegistry.Build(commandConfigs)
	if err != nil {
		return nil, err
	}
	return NewCommandInvoker(commands).Execute(ctx, imageData)
}
