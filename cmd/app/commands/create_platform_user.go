package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	platformUseCase "github.com/allisson/tenantconfig/internal/platformuser/usecase"
)

// RunCreatePlatformUser creates a back office operator. When password is empty
// it is read as the first line of the input stream so it never lands in shell history.
func RunCreatePlatformUser(
	ctx context.Context,
	users platformUseCase.UseCase,
	logger *slog.Logger,
	streams IOTuple,
	input platformUseCase.CreateUserInput,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	if input.Password == "" {
		_, _ = fmt.Fprint(streams.Writer, "Password: ")
		line, err := bufio.NewReader(streams.Reader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		input.Password = strings.TrimRight(line, "\r\n")
		_, _ = fmt.Fprintln(streams.Writer)
	}

	user, err := users.CreateUser(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create platform user: %w", err)
	}

	if format == "json" {
		if err := writeJSON(streams.Writer, map[string]any{
			"id":          user.ID.String(),
			"name":        user.Name,
			"email":       user.Email,
			"mfa_enabled": user.MFASecret != "",
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintln(streams.Writer, "Platform user created successfully")
		_, _ = fmt.Fprintf(streams.Writer, "ID: %s\n", user.ID)
		_, _ = fmt.Fprintf(streams.Writer, "Email: %s\n", user.Email)
		_, _ = fmt.Fprintf(streams.Writer, "MFA enabled: %t\n", user.MFASecret != "")
	}

	logger.Info("platform user created", slog.String("user_id", user.ID.String()))
	return nil
}
