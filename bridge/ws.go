// Copyright 2026 The hostbridge Authors
// This file is part of the hostbridge library.
//
// The hostbridge library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The hostbridge library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the hostbridge library. If not, see <http://www.gnu.org/licenses/>.

package bridge

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/peer"
	"github.com/scriptbridge/hostbridge/rpc"
)

// startWS serves the rpc server over websockets, guarded by jwt auth.
func (inst *instance) startWS(conf *Config) error {
	secret, err := obtainJWTSecret(conf.jwtSecretPath())
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", conf.WSEndpoint())
	if err != nil {
		return err
	}
	handler := rpc.NewJWTHandler(secret, inst.rpc.WebsocketHandler(conf.WSOrigins))
	inst.ws = &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	inst.wsURL = "ws://" + listener.Addr().String()
	go func() {
		if err := inst.ws.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			inst.server.log.Warn("Websocket listener failed", "err", err)
		}
	}()
	return nil
}

// obtainJWTSecret loads the jwt secret from fileName, generating a new one if
// the file does not exist.
func obtainJWTSecret(fileName string) ([]byte, error) {
	secret, err := peer.LoadJWTSecret(fileName)
	if err == nil {
		log.Info("Loaded JWT secret file", "path", fileName, "crc32", fmt.Sprintf("%#x", crc32.ChecksumIEEE(secret)))
		return secret, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Error("Invalid JWT secret", "path", fileName, "err", err)
		return nil, err
	}
	// Need to generate one
	secret = make([]byte, 32)
	crand.Read(secret)
	if err := os.MkdirAll(filepath.Dir(fileName), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(fileName, []byte("0x"+hex.EncodeToString(secret)), 0600); err != nil {
		return nil, err
	}
	log.Info("Generated JWT secret", "path", fileName)
	return secret, nil
}
