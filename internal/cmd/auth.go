package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/labtrack/internal/api"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Session operations (login, logout, whoami, permissions)",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		res := a.session.Login(cmd.Context(), email, password)
		if !res.Success {
			return fmt.Errorf("login failed: %s", res.Message)
		}
		user := a.session.Snapshot().User
		fmt.Printf("✓ Logged in as: %s <%s>\n", user.Name, user.Email)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Register a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.SignupRequest{}
		req.Name, _ = cmd.Flags().GetString("name")
		req.Email, _ = cmd.Flags().GetString("email")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Company, _ = cmd.Flags().GetString("company")

		res := a.session.Signup(cmd.Context(), req)
		if !res.Success {
			return fmt.Errorf("signup failed: %s", res.Message)
		}
		fmt.Printf("✓ Account created: %s\n", req.Email)
		return nil
	},
}

var inviteAcceptCmd = &cobra.Command{
	Use:   "invite-accept",
	Short: "Complete an invited signup",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")

		res := a.session.AcceptInvite(cmd.Context(), token, name, password)
		if !res.Success {
			return fmt.Errorf("invite acceptance failed: %s", res.Message)
		}
		fmt.Println("✓ Invite accepted, you are signed in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a.session.Logout(cmd.Context())
		if err := a.client.ClearSession(a.cfg.SessionFile); err != nil {
			return err
		}
		fmt.Println("✓ Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a.session.CheckAuth(cmd.Context())
		state := a.session.Snapshot()
		if !state.IsAuthenticated {
			fmt.Println("Not logged in")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tCOMPANY")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", state.User.ID, state.User.Name, state.User.Email, state.User.CompanyID)
		return w.Flush()
	},
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "List the current identity's module permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := a.client.MyPermissions(cmd.Context())
		if err != nil {
			return err
		}
		if list.HasSystemRole {
			fmt.Println("System role: all actions on all modules")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODULE\tALLOWED ACTIONS")
		for _, grant := range list.Permissions {
			fmt.Fprintf(w, "%s\t%s\n", grant.Module, strings.Join(grant.AllowedActions, ", "))
		}
		return w.Flush()
	},
}

func init() {
	loginCmd.Flags().String("email", "", "user email")
	loginCmd.Flags().String("password", "", "password")

	signupCmd.Flags().String("name", "", "display name")
	signupCmd.Flags().String("email", "", "user email")
	signupCmd.Flags().String("password", "", "password")
	signupCmd.Flags().String("company", "", "company name (optional)")

	inviteAcceptCmd.Flags().String("token", "", "invite token")
	inviteAcceptCmd.Flags().String("name", "", "display name")
	inviteAcceptCmd.Flags().String("password", "", "password")

	authCmd.AddCommand(loginCmd, signupCmd, inviteAcceptCmd, logoutCmd, whoamiCmd, permissionsCmd)
	rootCmd.AddCommand(authCmd)
}
