// Command smoke drives one booking through the direct service path against a
// running API instance. It exists for post-deploy verification: it exercises
// login, booking creation, the status workflow, the billing gate, and
// completion, and exits non-zero on the first divergence.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]json.RawMessage `json:"meta"`
}

type client struct {
	base  string
	http  *http.Client
	token string
}

func main() {
	var (
		base             string
		adminEmail       string
		adminPassword    string
		customerEmail    string
		customerPassword string
		timeout          time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&adminEmail, "admin-email", "admin@garasku.id", "Admin login email")
	flag.StringVar(&adminPassword, "admin-password", "", "Admin login password")
	flag.StringVar(&customerEmail, "customer-email", "smoke@garasku.id", "Customer login email")
	flag.StringVar(&customerPassword, "customer-password", "", "Customer login password")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if adminPassword == "" || customerPassword == "" {
		log.Fatal("-admin-password and -customer-password are required")
	}

	httpClient := &http.Client{Timeout: timeout}
	c := &client{base: base, http: httpClient}
	if err := c.login(adminEmail, adminPassword); err != nil {
		log.Fatalf("admin login failed: %v", err)
	}
	customer := &client{base: base, http: httpClient}
	if err := customer.login(customerEmail, customerPassword); err != nil {
		log.Fatalf("customer login failed: %v", err)
	}

	bookingID, err := customer.createBooking()
	if err != nil {
		log.Fatalf("create booking failed: %v", err)
	}
	fmt.Printf("booking %s created\n", bookingID)

	steps := []string{"ASSIGNED", "ACCEPTED", "VEHICLE_AT_MERCHANT", "SERVICE_STARTED"}
	for _, status := range steps {
		if err := c.transition(bookingID, status); err != nil {
			log.Fatalf("transition to %s failed: %v", status, err)
		}
		fmt.Printf("booking %s -> %s\n", bookingID, status)
	}

	// Completion must be rejected until a bill file is attached.
	if err := c.transition(bookingID, "SERVICE_COMPLETED"); err == nil {
		log.Fatal("completion without a bill file was accepted; billing gate is broken")
	}
	fmt.Println("completion correctly blocked before billing")

	if err := c.upsertBilling(bookingID); err != nil {
		log.Fatalf("billing upsert failed: %v", err)
	}
	for _, status := range []string{"SERVICE_COMPLETED", "DELIVERED"} {
		if err := c.transition(bookingID, status); err != nil {
			log.Fatalf("transition to %s failed: %v", status, err)
		}
		fmt.Printf("booking %s -> %s\n", bookingID, status)
	}

	fmt.Println("smoke run passed")
	os.Exit(0)
}

func (c *client) login(email, password string) error {
	env, err := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if data.AccessToken == "" {
		return fmt.Errorf("login response carried no access token")
	}
	c.token = data.AccessToken
	return nil
}

func (c *client) createBooking() (string, error) {
	env, err := c.do(http.MethodPost, "/bookings", map[string]interface{}{
		"vehicleMake":    "Toyota",
		"vehicleModel":   "Avanza",
		"plateNumber":    fmt.Sprintf("SMOKE %d", time.Now().Unix()),
		"serviceType":    "General service",
		"pickupRequired": false,
	})
	if err != nil {
		return "", err
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode booking: %w", err)
	}
	return data.ID, nil
}

func (c *client) transition(bookingID, status string) error {
	_, err := c.do(http.MethodPatch, "/bookings/"+bookingID+"/status", map[string]string{
		"status": status,
	})
	return err
}

func (c *client) upsertBilling(bookingID string) error {
	_, err := c.do(http.MethodPut, "/bookings/"+bookingID+"/billing", map[string]interface{}{
		"invoiceNo":  fmt.Sprintf("SMOKE-%d", time.Now().Unix()),
		"labourCost": 100,
		"gst":        18,
		"fileUrl":    "/uploads/smoke-bill.pdf",
	})
	return err
}

func (c *client) do(method, path string, body interface{}) (*envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%s %s: status %d, undecodable body", method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		if env.Error != nil {
			return nil, fmt.Errorf("%s %s: %s (%s)", method, path, env.Error.Message, env.Error.Code)
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return &env, nil
}
