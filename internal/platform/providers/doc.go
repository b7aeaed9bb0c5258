// Package providers contains the adapters for the external image-generation
// services. Each adapter implements generation.Provider: it translates the
// generic generation parameters into a provider-specific API call and
// normalizes the response (or any failure) into the common result and error
// shapes. Adapters hold only their own credentials and HTTP plumbing; all
// orchestration, failover, and persistence concerns live elsewhere.
package providers
