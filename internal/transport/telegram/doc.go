// Package telegram implements transport.Sender on top of telebot.
package telegram
