package network

import "github.com/unikmhz/npui-sub001/pkg/protocol"

// Bus and module maintenance commands. They return the raw reply payload;
// the head-end does not document its layout.

// BusStatus queries BUS_GET_STATUS
func (c *Client) BusStatus() ([]byte, error) {
	return c.Call(protocol.CmdBusGetStatus, protocol.AddressBus, nil)
}

// BusStop suspends the module bus
func (c *Client) BusStop() ([]byte, error) {
	if err := c.requireAuth("bus stop"); err != nil {
		return nil, err
	}
	return c.Call(protocol.CmdBusStop, protocol.AddressBus, nil)
}

// BusResume resumes the module bus
func (c *Client) BusResume() ([]byte, error) {
	if err := c.requireAuth("bus resume"); err != nil {
		return nil, err
	}
	return c.Call(protocol.CmdBusResume, protocol.AddressBus, nil)
}

// AddModule registers a module at addr
func (c *Client) AddModule(addr protocol.Address, payload []byte) ([]byte, error) {
	if err := c.requireAuth("add module"); err != nil {
		return nil, err
	}
	return c.Call(protocol.CmdAddModule, addr, payload)
}

// ModuleClear, ModuleCheck, ModuleCheckStop, ModuleDelete and ModuleReset
// target a single module or, with AddressBroadcast, every module.

func (c *Client) ModuleClear(addr protocol.Address) ([]byte, error) {
	return c.moduleCommand("module clear", protocol.CmdModuleClear, addr)
}

func (c *Client) ModuleCheck(addr protocol.Address) ([]byte, error) {
	return c.moduleCommand("module check", protocol.CmdModuleCheck, addr)
}

func (c *Client) ModuleCheckStop(addr protocol.Address) ([]byte, error) {
	return c.moduleCommand("module check stop", protocol.CmdModuleCheckStop, addr)
}

func (c *Client) ModuleDelete(addr protocol.Address) ([]byte, error) {
	return c.moduleCommand("module delete", protocol.CmdModuleDelete, addr)
}

func (c *Client) ModuleReset(addr protocol.Address) ([]byte, error) {
	return c.moduleCommand("module reset", protocol.CmdModuleReset, addr)
}

func (c *Client) moduleCommand(op string, cmd protocol.Command, addr protocol.Address) ([]byte, error) {
	if err := c.requireAuth(op); err != nil {
		return nil, err
	}
	return c.Call(cmd, addr, nil)
}

// Status queries STATUS_GET on the configured module
func (c *Client) Status() ([]byte, error) {
	return c.Call(protocol.CmdStatusGet, c.config.Address, nil)
}

// Config queries CFG_GET on the configured module
func (c *Client) Config() ([]byte, error) {
	return c.Call(protocol.CmdConfigGet, c.config.Address, nil)
}

// Settings queries SETTINGS_GET on addr
func (c *Client) Settings(addr protocol.Address) ([]byte, error) {
	return c.Call(protocol.CmdSettingsGet, addr, nil)
}

// SetSettings writes a raw settings block to addr
func (c *Client) SetSettings(addr protocol.Address, data []byte) error {
	if err := c.requireAuth("set settings"); err != nil {
		return err
	}
	_, err := c.Call(protocol.CmdSettingsSet, addr, data)
	return err
}

// ResetSettings restores factory settings on addr
func (c *Client) ResetSettings(addr protocol.Address) error {
	if err := c.requireAuth("reset settings"); err != nil {
		return err
	}
	_, err := c.Call(protocol.CmdSettingsReset, addr, nil)
	return err
}

// ReadLogo fetches the on-screen logo bitmap
func (c *Client) ReadLogo(addr protocol.Address) ([]byte, error) {
	return c.Call(protocol.CmdLogoRead, addr, nil)
}

// WriteLogo uploads an on-screen logo bitmap
func (c *Client) WriteLogo(addr protocol.Address, data []byte) error {
	if err := c.requireAuth("write logo"); err != nil {
		return err
	}
	_, err := c.Call(protocol.CmdLogoWrite, addr, data)
	return err
}

// EthernetAdd starts ethernet module discovery
func (c *Client) EthernetAdd(addr protocol.Address, payload []byte) ([]byte, error) {
	if err := c.requireAuth("ethernet add"); err != nil {
		return nil, err
	}
	return c.Call(protocol.CmdEthernetAdd, addr, payload)
}

// EthernetStop ends ethernet module discovery
func (c *Client) EthernetStop(addr protocol.Address) ([]byte, error) {
	if err := c.requireAuth("ethernet stop"); err != nil {
		return nil, err
	}
	return c.Call(protocol.CmdEthernetStop, addr, nil)
}
