// Command token mints an operator access token signed with JWT_SECRET.
//
//	token --operator 7 --role OPERATOR --ttl 120
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/school-show-booking/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		operatorID uint64
		role       string
		ttlMin     int
	)
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.Uint64Var(&operatorID, "operator", 0, "operator id placed in the subject claim")
	fs.StringVarP(&role, "role", "r", utils.RoleOperator, "CLERK, OPERATOR or ADMIN")
	fs.IntVar(&ttlMin, "ttl", 60, "lifetime in minutes")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if operatorID == 0 {
		return errors.New("--operator is required")
	}
	role = strings.ToUpper(role)
	switch role {
	case utils.RoleClerk, utils.RoleOperator, utils.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	_ = godotenv.Load()
	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), operatorID, role, ttlMin)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]string{
		"access_token": tok.Token,
		"expires_at":   tok.Exp.Format(time.RFC3339),
	})
}
