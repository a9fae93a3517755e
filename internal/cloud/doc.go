// Package cloud talks to the appliance vendor's account API.
//
// It does two things: exchanges an email/password pair for an account
// session, and lists the device manifest for that account. Each manifest
// entry carries the encrypted local credentials needed to open a session
// with the appliance on the local network.
//
//	client := cloud.NewClient(cloud.Config{Country: "GB"})
//	session, err := client.Authenticate(ctx, email, password)
//	if err != nil {
//	    return err
//	}
//	entries, err := session.Devices(ctx)
package cloud
