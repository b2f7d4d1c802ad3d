package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"offboarding/ocm/internal/identity"
)

func newLoginCmd(rt *runtime) *cobra.Command {
	var (
		email        string
		password     string
		token        string
		refreshToken string
		magicLink    bool
		redirectTo   string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a password, a magic link, or an existing access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			switch {
			case token != "":
				id, err := svc.SignInWithToken(ctx, token, refreshToken, 0)
				if err != nil {
					return err
				}
				return printIdentity(rt, id)
			case magicLink:
				if strings.TrimSpace(email) == "" {
					return errors.New("--email is required")
				}
				if err := svc.SendMagicLink(ctx, email, redirectTo); err != nil {
					return err
				}
				return emit(rt, map[string]any{"sent": true, "email": email}, func(w io.Writer) {
					fmt.Fprintf(w, "Magic link sent to %s.\n", email)
				})
			}

			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				password = os.Getenv("OCM_PASSWORD")
			}
			if password == "" {
				password, err = readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
			}
			id, err := svc.SignIn(ctx, email, password)
			if err != nil {
				return err
			}
			return printIdentity(rt, id)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (or OCM_PASSWORD, or prompt)")
	cmd.Flags().StringVar(&token, "token", "", "store this access token instead of signing in")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token to store with --token")
	cmd.Flags().BoolVar(&magicLink, "magic-link", false, "email a sign-in link instead")
	cmd.Flags().StringVar(&redirectTo, "redirect-to", "", "redirect URL for the magic link")
	return cmd
}

func readLine(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if svc, err := rt.service(cmd.Context()); err == nil {
				if err := svc.SignOut(cmd.Context()); err != nil {
					return err
				}
			} else {
				// No usable backend; the stored session can still be dropped.
				if err := rt.init(cmd.Context()); err != nil {
					return err
				}
				if err := rt.sessions.Clear(cmd.Context()); err != nil {
					return err
				}
			}
			return emit(rt, map[string]bool{"signedOut": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Signed out.")
			})
		},
	}
}

func newWhoamiCmd(rt *runtime) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			if local {
				info, err := svc.SessionInfo(cmd.Context())
				if err != nil {
					return err
				}
				return emit(rt, info, func(w io.Writer) {
					if !info.Active {
						fmt.Fprintln(w, "Not signed in.")
						return
					}
					fmt.Fprintf(w, "Subject\t%s\n", orDash(info.Subject))
					fmt.Fprintf(w, "Email\t%s\n", orDash(info.Email))
					if !info.ExpiresAt.IsZero() {
						fmt.Fprintf(w, "Expires\t%s\n", info.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
					}
					fmt.Fprintf(w, "Expired\t%s\n", yesNo(info.Expired))
					fmt.Fprintf(w, "Token\t%s\n", info.Fingerprint)
				})
			}
			id, err := svc.Identity(cmd.Context())
			if err != nil {
				return err
			}
			return printIdentity(rt, id)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "decode the stored token without calling the backend")
	return cmd
}

func printIdentity(rt *runtime, id identity.Identity) error {
	return emit(rt, id, func(w io.Writer) {
		fmt.Fprintf(w, "User\t%s (%s)\n", orDash(id.Email), orDash(id.UserID))
		if id.OrgNotSet {
			fmt.Fprintln(w, "Org\tOrg not set.")
		} else {
			fmt.Fprintf(w, "Org\t%s (%s)\n", orDash(id.OrgName), id.OrgID)
		}
		fmt.Fprintf(w, "Role\t%s\n", id.Role)
		fmt.Fprintf(w, "Platform admin\t%s\n", yesNo(id.PlatformAdmin))
		if id.MembershipError != "" {
			fmt.Fprintf(w, "Membership\tunavailable: %s\n", id.MembershipError)
		}
	})
}
