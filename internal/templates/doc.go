// Package templates renders admin-side template previews with the Liquid
// template language. Production sends use plain merge-tag substitution; the
// preview engine exists so admins can see resolved content and catch unknown
// tags before a campaign goes live.
package templates
